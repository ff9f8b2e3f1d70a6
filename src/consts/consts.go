package consts

import (
	"fmt"
	"os"
	"runtime"
)

const (
	AppName = "shelf"
)

const (
	// DefaultStoreFile 默认存储文件名，位于当前工作目录
	DefaultStoreFile = "default.shelf"
	// DevVersion 未通过 ldflags 注入版本时使用的版本号
	DevVersion = "0.0.0-dev"
	// MinCompatibleVersion 能读写本程序所写存储文件的最低程序版本
	MinCompatibleVersion = "0.1.0"
)

type Info struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	BuildTime  string `json:"build_time"`
	GitHash    string `json:"git_hash"`
	Pid        int    `json:"pid"`
	Platform   string `json:"platform"`
	GoVersion  string `json:"go_version"`
}

var (
	BuildTime  string
	AppVersion string
	GitHash    string
)

// Version 返回程序版本，未注入时为 DevVersion
func Version() string {
	if AppVersion == "" {
		return DevVersion
	}
	return AppVersion
}

// GetAppInfo 返回应用信息
// 注意：必须使用函数而非变量，因为 AppVersion 等字段是通过 -ldflags 在链接阶段注入的
func GetAppInfo() Info {
	return Info{
		AppName:    AppName,
		AppVersion: Version(),
		BuildTime:  BuildTime,
		GitHash:    GitHash,
		Pid:        os.Getpid(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		GoVersion:  runtime.Version(),
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("%s %s %s %s", i.AppName, i.AppVersion, i.Platform, i.GoVersion)
	if i.GitHash != "" {
		s += " " + i.GitHash
	}
	if i.BuildTime != "" {
		s += " built at " + i.BuildTime
	}
	return s
}
