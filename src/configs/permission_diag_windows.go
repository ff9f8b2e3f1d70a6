//go:build windows

package configs

// PermissionDiagnostics Windows 上只保留接口，不做 Unix 权限检查
type PermissionDiagnostics struct {
	Suggestions []string
}

// DiagnoseFilePermission Windows 上不执行详细检查
func DiagnoseFilePermission(filePath string) *PermissionDiagnostics {
	return &PermissionDiagnostics{}
}

// FormatError 格式化权限诊断为用户友好的错误信息
func (d *PermissionDiagnostics) FormatError() string {
	return ""
}
