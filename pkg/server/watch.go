package server

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lkarlslund/chatsettings/pkg/config"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config file whenever it changes on disk until ctx is
// done. The directory is watched so atomic renames are picked up.
func (s *Server) Watch(ctx context.Context) error {
	target, err := filepath.Abs(s.store.Path())
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	s.logger.Debug("watching config", "path", target)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher", "err", err)
		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn("config reload failed, keeping previous config", "err", err)
			}
		}
	}
}

// Reload re-reads the config file, swaps it in and tells event clients.
func (s *Server) Reload() error {
	cfg, err := config.LoadServerConfig(s.store.Path())
	if err != nil {
		return err
	}
	if s.env != nil {
		cfg.ApplyEnv(s.env)
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	s.store.Replace(cfg)
	s.builtin.Invalidate()
	s.events.Broadcast(Event{Type: EventCatalogReloaded, At: nowUTC()})
	s.logger.Info("config reloaded", "providers", len(cfg.Providers))
	return nil
}
