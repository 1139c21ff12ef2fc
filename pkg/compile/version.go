package compile

import (
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

// 通过 -ldflags "-X github.com/play/throttle/pkg/compile.Version=..." 注入
var (
	Name     = "throttle"
	Id       = "" // Hostname.Name
	Hostname = ""

	Version   = "dev"
	GoVersion = runtime.Version()
	GoOs      = runtime.GOOS
	GoArch    = runtime.GOARCH
	GitCommit = ""
	BuildTime = ""
)

func init() {
	Hostname, _ = os.Hostname()
	Id = fmt.Sprintf("%s.%s", Hostname, Name)
}

func Os() string {
	return fmt.Sprintf("%s/%s", GoOs, GoArch)
}

// Info 返回构建信息，用于健康检查接口
func Info() map[string]string {
	return map[string]string{
		"id":         Id,
		"version":    Version,
		"go_version": GoVersion,
		"os":         Os(),
		"commit":     GitCommit,
		"build_time": BuildTime,
	}
}

func Print() {
	fmt.Printf("Id: %s\nVersion: %s\nGo Version: %s\nOS: %s\nGit Commit: %s\nBuild Time: %s\n", Id, Version, GoVersion, Os(), GitCommit, BuildTime)
}

func Log() {
	log.Info().Str("id", Id).Str("version", Version).Str("go_version", GoVersion).Str("os", Os()).Str("commit", GitCommit).Str("build_time", BuildTime).Msg("build info")
}
