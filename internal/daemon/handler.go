package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Dronakurl/realtypecoach/internal/config"
	"github.com/Dronakurl/realtypecoach/internal/dictionary"
	"github.com/Dronakurl/realtypecoach/internal/ipc"
	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/store"
	syncpkg "github.com/Dronakurl/realtypecoach/internal/sync"
)

// handler implements the control-plane commands against the daemon.
type handler struct {
	d *Daemon
}

func newHandler(d *Daemon) ipc.Handler {
	return &handler{d: d}
}

func (h *handler) HandleMessage(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	switch msg.Header.Type {
	case ipc.MsgStatus:
		return h.status(msg)
	case ipc.MsgSyncNow:
		return h.syncNow(ctx, msg)
	case ipc.MsgExport:
		return h.export(msg)
	case ipc.MsgClear:
		return h.clear(msg)
	case ipc.MsgReloadConfig:
		return h.reloadConfig(msg)
	case ipc.MsgGetSettings:
		return h.getSettings(msg)
	case ipc.MsgSetSetting:
		return h.setSetting(msg)
	default:
		return nil, fmt.Errorf("unknown command 0x%04x", uint16(msg.Header.Type))
	}
}

func (h *handler) status(msg *ipc.Message) (*ipc.Message, error) {
	d := h.d
	cfg := d.currentConfig()

	resp := ipc.StatusResponse{
		Running:        true,
		Uptime:         time.Since(d.startTime).Round(time.Second).String(),
		ActiveLayout:   string(d.layout.Current()),
		Devices:        d.source.DevicePaths(),
		QueueDepth:     d.queue.Len(),
		QueueDrops:     d.queue.Drops(),
		EventsConsumed: d.eventsConsumed.Load(),
		SyncEnabled:    cfg.Sync.PostgresSyncEnabled && d.syncer != nil,
		LastSyncAt:     d.lastSyncAtMs.Load(),
	}
	if errText := d.lastSyncError.Load(); errText != nil {
		resp.LastSyncError = *errText
	}

	today := time.Now().Format("2006-01-02")
	if summary, found, err := d.localDB.GetDailySummary(today); err == nil && found {
		resp.BurstsToday = summary.TotalBursts
		resp.KeystrokesToday = summary.TotalKeystrokes
		resp.AvgWPMToday = summary.AvgWPM
	}
	if best, found, err := d.analyzer.TodayBestWPM(); err == nil && found {
		resp.TodayBestWPM = best
	}
	if avg, err := d.analyzer.AverageWPM(); err == nil {
		resp.LongTermAvgWPM = avg
	}

	return ipc.NewMessage(ipc.MsgStatusResp, msg.Header.RequestID, resp)
}

func (h *handler) syncNow(ctx context.Context, msg *ipc.Message) (*ipc.Message, error) {
	d := h.d
	if d.syncer == nil {
		return nil, errors.New("remote sync is not configured")
	}

	start := time.Now()
	entry, err := d.syncer.Sync(ctx)
	if errors.Is(err, syncpkg.ErrSyncInProgress) {
		return ipc.NewMessage(ipc.MsgSyncNowResp, msg.Header.RequestID, ipc.SyncNowResponse{
			InProgress: true,
		})
	}

	d.metrics.RecordSync(time.Since(start), entry.Pushed, entry.Pulled, err)
	d.lastSyncAtMs.Store(entry.Timestamp)

	resp := ipc.SyncNowResponse{
		Started:    true,
		Pushed:     entry.Pushed,
		Pulled:     entry.Pulled,
		Merged:     entry.Merged,
		DurationMs: entry.DurationMs,
		Error:      entry.Error,
	}
	return ipc.NewMessage(ipc.MsgSyncNowResp, msg.Header.RequestID, resp)
}

func (h *handler) export(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.ExportRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}
	if req.OutputPath == "" {
		return nil, errors.New("output_path is required")
	}
	if req.ToMs == 0 {
		req.ToMs = time.Now().UnixMilli()
	}

	f, err := os.OpenFile(req.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := h.d.localDB.ExportBurstsCSV(f, req.FromMs, req.ToMs); err != nil {
		return nil, err
	}
	return ipc.NewMessage(ipc.MsgExportResp, msg.Header.RequestID, ipc.ExportResponse{
		OutputPath: req.OutputPath,
	})
}

func (h *handler) clear(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.ClearRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}
	if !req.Confirm {
		return nil, errors.New("clear requires confirmation")
	}
	if err := h.d.localDB.ClearAll(); err != nil {
		return nil, err
	}
	h.d.log.Info("all stored data cleared")
	return ipc.NewMessage(ipc.MsgClearResp, msg.Header.RequestID, nil)
}

func (h *handler) reloadConfig(msg *ipc.Message) (*ipc.Message, error) {
	cfg, err := h.d.cfgLoader.Load()
	if err != nil {
		return nil, err
	}
	h.d.cfgLoader.Replace(cfg)
	return ipc.NewMessage(ipc.MsgReloadConfigResp, msg.Header.RequestID, nil)
}

func (h *handler) getSettings(msg *ipc.Message) (*ipc.Message, error) {
	return ipc.NewMessage(ipc.MsgGetSettingsResp, msg.Header.RequestID, ipc.SettingsResponse{
		Settings: h.d.currentConfig().SettingsSnapshot(),
	})
}

func (h *handler) setSetting(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.SetSettingRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	next, err := h.d.currentConfig().ApplySetting(req.Key, req.Value)
	if err != nil {
		return nil, err
	}
	h.d.cfgLoader.Replace(next)

	// Persist to the settings table so the change survives restarts and
	// participates in last-writer-wins sync.
	if err := h.d.localDB.UpsertSetting(store.Setting{
		Key:         req.Key,
		Value:       req.Value,
		UpdatedAtMs: time.Now().UnixMilli(),
	}); err != nil {
		h.d.log.Warn("persisting setting failed", "key", req.Key, "error", err)
	}

	if req.Key == config.KeyExcludeNamesEnabled {
		// Enabling retroactively purges name words; see the sync-side
		// handling for the same rule applied to pulled settings.
		h.applyExcludeNames(req.Value == "true")
	}

	return ipc.NewMessage(ipc.MsgSetSettingResp, msg.Header.RequestID, nil)
}

func (h *handler) applyExcludeNames(enabled bool) {
	if !enabled {
		return
	}
	cfg := h.d.currentConfig()
	layouts := []keycodes.Layout{keycodes.US, keycodes.DE}
	for _, name := range dictionary.CommonNames(cfg.Dictionary.EnabledLanguages) {
		for _, layout := range layouts {
			if err := h.d.localDB.DeleteWordStat(name, layout); err != nil {
				h.d.log.Warn("purging name word failed", "error", err)
				return
			}
		}
	}
}
