package util

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strconv"
)

// LocalURL 浏览器访问地址；未指定或监听全部地址时使用 localhost
func LocalURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
}

func browserCommand(goos, url string) *exec.Cmd {
	switch goos {
	case "windows":
		// rundll32 在 Windows 7 上比 cmd /c start 稳定
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		return exec.Command("xdg-open", url)
	}
}

// OpenBrowser 打开默认浏览器，失败时依次尝试常见浏览器
func OpenBrowser(url string) error {
	err := browserCommand(runtime.GOOS, url).Start()
	if err == nil {
		return nil
	}

	switch runtime.GOOS {
	case "windows":
		return exec.Command("explorer", url).Start()
	case "linux":
		for _, browser := range []string{"google-chrome", "firefox", "chromium-browser", "sensible-browser"} {
			if exec.Command(browser, url).Start() == nil {
				return nil
			}
		}
	}
	return err
}
