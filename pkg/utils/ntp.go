package utils

import (
	"time"

	"github.com/beevik/ntp"
)

// ClockOffset asks server how far the local clock is off. A positive offset
// means the local clock is behind.
func ClockOffset(server string) (time.Duration, error) {
	resp, err := ntp.Query(server)
	if err != nil {
		return 0, err
	}
	if err = resp.Validate(); err != nil {
		return 0, err
	}

	return resp.ClockOffset, nil
}
