package ps

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"pi-capture/pkg/types"
)

func CPUStatus() (CPU, error) {
	list, err := cpu.Percent(time.Millisecond*50, false)
	if err != nil {
		return CPU{}, err
	}
	if len(list) == 0 {
		return CPU{}, nil
	}

	return CPU{
		Percent: list[0],
	}, nil
}

func MemoryStatus() (Memory, error) {
	memory, err := mem.VirtualMemory()
	if err != nil {
		return Memory{}, err
	}
	swapMemory, err := mem.SwapMemory()
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		Total:       memory.Total,
		Used:        memory.Used,
		UsedPercent: memory.UsedPercent,

		SwapTotal:       swapMemory.Total,
		SwapUsed:        swapMemory.Used,
		SwapUsedPercent: swapMemory.UsedPercent,
	}, nil
}

func DiskUsage(path string) (Disk, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return Disk{}, err
	}

	return Disk{
		Path:        path,
		Total:       usage.Total,
		Free:        usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Snapshot collects what a capture records about the host. The disk figures
// are for the filesystem holding dir.
func Snapshot(dir string) (*types.SystemSnapshot, error) {
	d, err := DiskUsage(dir)
	if err != nil {
		return nil, err
	}
	s := &types.SystemSnapshot{
		DiskFree:        d.Free,
		DiskUsedPercent: d.UsedPercent,
	}
	if m, err := MemoryStatus(); err == nil {
		s.MemUsedPercent = m.UsedPercent
	}

	return s, nil
}

type Status struct {
	CPU    CPU    `json:"cpu"`
	Memory Memory `json:"memory"`
	Disk   Disk   `json:"disk"`
}

func HostStatus(dir string) (Status, error) {
	var (
		s   Status
		err error
	)
	if s.CPU, err = CPUStatus(); err != nil {
		return s, err
	}
	if s.Memory, err = MemoryStatus(); err != nil {
		return s, err
	}
	if s.Disk, err = DiskUsage(dir); err != nil {
		return s, err
	}

	return s, nil
}

type CPU struct {
	Percent float64 `json:"percent"`
}

type Memory struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`

	SwapTotal       uint64  `json:"swapTotal"`
	SwapUsed        uint64  `json:"swapUsed"`
	SwapUsedPercent float64 `json:"swapUsedPercent"`
}

type Disk struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}
