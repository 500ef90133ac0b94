package gdrom

import (
	"github.com/hansbonini/gdtools/pkg/common"
)

// Drive owns the currently mounted disc. Swapping the disc builds the new
// one completely before the old one is released, so a failed mount leaves
// the drive as it was.
type Drive struct {
	disc     Disc
	log      common.Logger
	onChange func(Disc)
}

// NewDrive creates an empty drive. onChange, if set, is called once after
// every successful mount or unmount with the new disc (nil when empty).
func NewDrive(log common.Logger, onChange func(Disc)) *Drive {
	return &Drive{
		log:      common.LoggerOrDefault(log),
		onChange: onChange,
	}
}

// SetChangeHook replaces the function called after every mount or unmount
func (d *Drive) SetChangeHook(onChange func(Disc)) {
	d.onChange = onChange
}

// Disc returns the mounted disc, or nil
func (d *Drive) Disc() Disc {
	return d.disc
}

// Mount replaces the current disc with disc. The previous disc is closed
// along with its backing files.
func (d *Drive) Mount(disc Disc) {
	old := d.disc
	d.disc = disc
	if old != nil && old != disc {
		if err := old.Close(true); err != nil {
			d.log.Warn(common.WarnFailedToCloseDisc, old.Name(), err)
		}
	}
	if d.onChange != nil {
		d.onChange(disc)
	}
}

// MountImage opens filename and mounts it. On failure the current disc is
// kept and the error is returned.
func (d *Drive) MountImage(filename string) error {
	disc, err := OpenImage(filename, d.log)
	if err != nil {
		return err
	}
	d.Mount(disc)
	return nil
}

// Unmount closes and removes the current disc
func (d *Drive) Unmount() {
	if d.disc == nil {
		return
	}
	d.Mount(nil)
	d.log.Info(common.InfoDiscUnmounted)
}

// CheckStatus polls the mounted disc for a media change
func (d *Drive) CheckStatus() bool {
	if d.disc == nil {
		return false
	}
	changed := d.disc.CheckStatus()
	if changed && d.onChange != nil {
		d.onChange(d.disc)
	}
	return changed
}

// RunTimeSlice forwards elapsed time to the mounted disc
func (d *Drive) RunTimeSlice(nanosecs uint32) {
	if d.disc != nil {
		d.disc.RunTimeSlice(nanosecs)
	}
}

// Status returns the value of the drive's disc-type register: the disc type
// with the ready bit set, or DiscNone when the drive is empty.
func (d *Drive) Status() DiscType {
	if d.disc == nil || len(d.disc.Tracks()) == 0 {
		return DiscNone
	}
	return d.disc.Type() | DiscReady
}

// Close unmounts the disc without notifying the change hook
func (d *Drive) Close() error {
	if d.disc == nil {
		return nil
	}
	err := d.disc.Close(true)
	d.disc = nil
	return err
}
