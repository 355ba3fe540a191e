package serial

import (
	"go.bug.st/serial/enumerator"

	"github.com/bft-labs/dualcap/internal/ports"
)

// EnumeratorLister lists ports with go.bug.st/serial/enumerator, which
// reports USB product strings and vendor ids on every platform.
type EnumeratorLister struct{}

func (EnumeratorLister) List() ([]ports.PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	out := make([]ports.PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, ports.PortInfo{
			Name:         d.Name,
			Description:  d.Product,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		})
	}
	return out, nil
}
