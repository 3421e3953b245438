package model

import "fmt"

// AppMode 运行模式
type AppMode string

const (
	ModeOnline  AppMode = "online"
	ModeOffline AppMode = "offline"
	ModeHybrid  AppMode = "hybrid"
)

func ParseAppMode(s string) (AppMode, error) {
	switch m := AppMode(s); m {
	case ModeOnline, ModeOffline, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown app mode %q", s)
}
