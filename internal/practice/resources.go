package practice

import (
	"github.com/parley-labs/parley/internal/media"
	"github.com/parley-labs/parley/internal/transport"
)

// BundleResources adapts a media.Bundle to the Resources interface. Only
// the microphone accessor needs wrapping; the rest passes through.
type BundleResources struct {
	*media.Bundle
}

func (b BundleResources) AcquireMicrophone(conn transport.Connection) (Mic, error) {
	mic, err := b.Bundle.AcquireMicrophone(conn)
	if err != nil {
		return nil, err
	}
	return mic, nil
}
