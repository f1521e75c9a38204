package tcpinfox

import (
	"os"
	"syscall"
	"unsafe"

	"github.com/m-lab/tcp-info/tcp"
)

func getTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error) {
	info := tcp.LinuxTCPInfo{}
	size := uint32(unsafe.Sizeof(info))
	// Fd returns a uintptr, but socket descriptors fit in an int.
	_, _, errno := syscall.Syscall6(
		uintptr(syscall.SYS_GETSOCKOPT),
		uintptr(int(fp.Fd())),
		uintptr(syscall.SOL_TCP),
		uintptr(syscall.TCP_INFO),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&size)),
		0)
	if errno != 0 {
		return nil, errno
	}
	return &info, nil
}
