//go:build !windows

package configs

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// PermissionDiagnostics 文件权限诊断信息
type PermissionDiagnostics struct {
	FilePath    string
	FileExists  bool
	CanRead     bool
	CanWrite    bool
	FileMode    os.FileMode
	OwnerUID    uint32
	OwnerGID    uint32
	CurrentUID  int
	CurrentGID  int
	IsDocker    bool
	Suggestions []string
}

// DiagnoseFilePermission 诊断配置文件或存储文件的权限问题
func DiagnoseFilePermission(filePath string) *PermissionDiagnostics {
	diag := &PermissionDiagnostics{
		FilePath:   filePath,
		IsDocker:   isInContainer(),
		CurrentUID: os.Getuid(),
		CurrentGID: os.Getgid(),
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		diag.Suggestions = append(diag.Suggestions,
			fmt.Sprintf("文件 %s 不存在，请检查路径是否正确", filePath))
		return diag
	}
	if err != nil {
		diag.Suggestions = append(diag.Suggestions,
			fmt.Sprintf("无法获取文件信息: %v", err))
		return diag
	}

	diag.FileExists = true
	diag.FileMode = fileInfo.Mode()
	if stat, ok := fileInfo.Sys().(*syscall.Stat_t); ok {
		diag.OwnerUID = stat.Uid
		diag.OwnerGID = stat.Gid
	}

	if f, err := os.OpenFile(filePath, os.O_RDONLY, 0); err == nil {
		diag.CanRead = true
		f.Close()
	}
	if f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_APPEND, 0); err == nil {
		diag.CanWrite = true
		f.Close()
	}

	diag.generateSuggestions()
	return diag
}

func (d *PermissionDiagnostics) generateSuggestions() {
	if d.CanRead && d.CanWrite {
		return
	}
	if !d.CanRead {
		d.Suggestions = append(d.Suggestions,
			fmt.Sprintf("无法读取文件 %s。文件所有者 UID:GID = %d:%d，当前进程 UID:GID = %d:%d，当前权限: %v",
				d.FilePath, d.OwnerUID, d.OwnerGID, d.CurrentUID, d.CurrentGID, d.FileMode))
	}
	if !d.CanWrite {
		d.Suggestions = append(d.Suggestions,
			fmt.Sprintf("无法写入文件 %s，迁移与配置变更将无法保存。当前权限: %v", d.FilePath, d.FileMode))
	}
	if d.IsDocker && d.OwnerUID == 0 && d.CurrentUID != 0 {
		d.Suggestions = append(d.Suggestions,
			"文件属于 root 用户，但容器以非 root 用户运行，请调整挂载目录的所有者")
	}
}

// FormatError 格式化权限诊断为用户友好的错误信息
func (d *PermissionDiagnostics) FormatError() string {
	if len(d.Suggestions) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n========== 权限诊断信息 ==========\n")
	for _, suggestion := range d.Suggestions {
		sb.WriteString(suggestion)
		sb.WriteString("\n")
	}
	sb.WriteString("===================================\n")
	return sb.String()
}

// isInContainer 判断是否运行在容器内
func isInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	b, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	s := string(b)
	return strings.Contains(s, "docker") || strings.Contains(s, "kubepods") || strings.Contains(s, "containerd")
}
