package machineid

import (
	"errors"

	"github.com/denisbrodbeck/machineid"

	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

const appID = "3d-print-me"

var ErrNoMachineID = errors.New("machine id unavailable and no fallback configured")

type hardwareMachineID struct {
	fallback string
}

// NewHardwareMachineID reads the OS machine id. fallback is used on hosts without one (containers).
func NewHardwareMachineID(fallback string) outbound.MachineIDService {
	return &hardwareMachineID{fallback: fallback}
}

func (h *hardwareMachineID) GetMachineID() (string, error) {
	// app-specific HMAC of the raw id, the raw id never leaves this package
	id, err := machineid.ProtectedID(appID)
	if err == nil && id != "" {
		return id, nil
	}
	if h.fallback != "" {
		return h.fallback, nil
	}
	if err == nil {
		err = ErrNoMachineID
	}
	return "", errors.Join(ErrNoMachineID, err)
}
