package serial

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/pkg/lifecycle"
	"github.com/bft-labs/dualcap/pkg/log"
)

// AutoPort is the configured port name that requests auto-detection.
const AutoPort = "auto"

// ErrNoPort is returned when no matching port exists and no fallback is set.
var ErrNoPort = errors.New("no matching serial port")

// DefaultMatch finds ESP32 boards: the generic CDC description, the chip
// name and Espressif's USB vendor id.
var DefaultMatch = []string{"USB Serial Device", "ESP32", "303A"}

// Discoverer resolves the serial port to capture from.
type Discoverer struct {
	Lister   ports.PortLister
	Match    []string
	Fallback string

	// WatchDir is watched for new device nodes while waiting. Empty
	// selects /dev.
	WatchDir string

	Logger log.Logger
}

// Resolve returns name unless it is AutoPort, in which case the first
// matching port is returned, or the fallback when nothing matches.
func (d *Discoverer) Resolve(name string) (string, error) {
	if name != "" && !strings.EqualFold(name, AutoPort) {
		return name, nil
	}
	if p, ok := d.match(); ok {
		return p, nil
	}
	return d.fallback()
}

func (d *Discoverer) fallback() (string, error) {
	if d.Fallback == "" {
		return "", ErrNoPort
	}
	d.logger().Warn("no matching serial port, using fallback", log.String("port", d.Fallback))
	return d.Fallback, nil
}

func (d *Discoverer) match() (string, bool) {
	if d.Lister == nil {
		return "", false
	}
	list, err := d.Lister.List()
	if err != nil {
		d.logger().Warn("serial port enumeration failed", log.Err(err))
		return "", false
	}

	patterns := d.Match
	if len(patterns) == 0 {
		patterns = DefaultMatch
	}

	var found []string
	for _, p := range list {
		if matches(p, patterns) {
			found = append(found, p.Name)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	if len(found) > 1 {
		d.logger().Info("several serial ports match, using the first",
			log.String("port", found[0]),
			log.String("candidates", strings.Join(found, ",")),
		)
	}
	return found[0], true
}

func matches(p ports.PortInfo, patterns []string) bool {
	desc := strings.ToLower(p.Description)
	for _, pat := range patterns {
		pat = strings.ToLower(strings.TrimSpace(pat))
		if pat == "" {
			continue
		}
		if strings.Contains(desc, pat) || strings.EqualFold(p.VID, pat) || strings.Contains(strings.ToLower(p.Name), pat) {
			return true
		}
	}
	return false
}

// Wait resolves name like Resolve but, when auto-detection finds nothing,
// keeps looking for up to timeout as device nodes appear. The fallback is
// only used once the timeout expires.
func (d *Discoverer) Wait(ctx context.Context, name string, timeout time.Duration) (string, error) {
	if name != "" && !strings.EqualFold(name, AutoPort) {
		return name, nil
	}
	if p, ok := d.match(); ok || timeout <= 0 {
		if ok {
			return p, nil
		}
		return d.fallback()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.logger().Info("waiting for serial device", log.Duration("timeout", timeout))

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		err = watcher.Add(d.watchDir())
	}
	if err != nil {
		d.logger().Debug("device watch unavailable, polling", log.Err(err))
		return d.poll(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return d.afterWait(ctx)
		case ev, ok := <-watcher.Events:
			if !ok {
				return d.poll(ctx)
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			// Give udev a moment to publish the node's attributes.
			select {
			case <-ctx.Done():
				return d.afterWait(ctx)
			case <-time.After(200 * time.Millisecond):
			}
			if p, ok := d.match(); ok {
				return p, nil
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return d.poll(ctx)
			}
			d.logger().Warn("device watch error", log.Err(werr))
		}
	}
}

func (d *Discoverer) poll(ctx context.Context) (string, error) {
	b := lifecycle.NewBackoff(100*time.Millisecond, 2*time.Second)
	for {
		if p, ok := d.match(); ok {
			return p, nil
		}
		if err := b.Wait(ctx); err != nil {
			return d.afterWait(ctx)
		}
	}
}

// afterWait distinguishes a caller cancellation from an expired wait.
func (d *Discoverer) afterWait(ctx context.Context) (string, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return d.fallback()
	}
	return "", fmt.Errorf("wait for serial port: %w", ctx.Err())
}

func (d *Discoverer) watchDir() string {
	if d.WatchDir != "" {
		return d.WatchDir
	}
	return "/dev"
}

func (d *Discoverer) logger() log.Logger {
	if d.Logger == nil {
		return log.NewNoopLogger()
	}
	return d.Logger
}
