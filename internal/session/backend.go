package session

import (
	"os"
	"os/exec"
)

// Backend - механизм повышения прав. Команда читает командную строку из stdin.
type Backend interface {
	Name() string
	Available() bool
	Command() (name string, args []string)
}

// Известные пути su на Android.
var suPaths = []string{
	"/system/bin/su",
	"/system/xbin/su",
	"/sbin/su",
	"/su/bin/su",
	"/system/sbin/su",
	"/vendor/bin/su",
	"/data/local/xbin/su",
	"/data/local/bin/su",
	"/data/adb/ksu/bin/su",
	"/data/adb/ap/bin/su",
}

// Каталоги менеджеров root: Magisk, KernelSU, APatch, SuperSU.
var rootManagerDirs = []string{
	"/data/adb/magisk",
	"/data/adb/ksu",
	"/data/adb/ap",
	"/system/app/SuperSU",
	"/system/app/Superuser.apk",
}

// SuBackend - Android root через su. Эвристики могут ошибаться в сторону "недоступно".
type SuBackend struct {
	stat     func(string) (os.FileInfo, error)
	lookPath func(string) (string, error)
}

func NewSuBackend() *SuBackend {
	return &SuBackend{stat: os.Stat, lookPath: exec.LookPath}
}

func (b *SuBackend) Name() string { return "su" }

func (b *SuBackend) Available() bool {
	for _, p := range suPaths {
		if fi, err := b.stat(p); err == nil && !fi.IsDir() {
			return true
		}
	}
	if _, err := b.lookPath("su"); err == nil {
		return true
	}
	for _, d := range rootManagerDirs {
		if _, err := b.stat(d); err == nil {
			return true
		}
	}
	return false
}

func (b *SuBackend) Command() (string, []string) {
	if p, err := b.lookPath("su"); err == nil {
		return p, nil
	}
	for _, p := range suPaths {
		if fi, err := b.stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "su", nil
}

// SudoBackend - Linux-хост, sudo без пароля (-n не ждет ввода).
type SudoBackend struct {
	lookPath func(string) (string, error)
}

func NewSudoBackend() *SudoBackend { return &SudoBackend{lookPath: exec.LookPath} }

func (b *SudoBackend) Name() string { return "sudo" }

func (b *SudoBackend) Available() bool {
	_, err := b.lookPath("sudo")
	return err == nil
}

func (b *SudoBackend) Command() (string, []string) { return "sudo", []string{"-n", "/bin/sh"} }

// DirectBackend - процесс уже работает под uid 0, нужен только shell.
type DirectBackend struct {
	Shell string
}

func (b DirectBackend) Name() string { return "direct" }

func (b DirectBackend) Available() bool {
	_, err := os.Stat(b.shell())
	return err == nil
}

func (b DirectBackend) Command() (string, []string) { return b.shell(), nil }

func (b DirectBackend) shell() string {
	if b.Shell == "" {
		return "/bin/sh"
	}
	return b.Shell
}

// BackendByName выбирает механизм по значению из конфига.
func BackendByName(name string) (Backend, bool) {
	switch name {
	case "su":
		return NewSuBackend(), true
	case "sudo":
		return NewSudoBackend(), true
	case "direct", "":
		return DirectBackend{}, true
	}
	return nil, false
}
