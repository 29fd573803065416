package sync

import (
	"context"
	"strconv"
	"strings"

	"github.com/Dronakurl/realtypecoach/internal/keycodes"
	"github.com/Dronakurl/realtypecoach/internal/stats"
	"github.com/Dronakurl/realtypecoach/internal/store"
)

// mergeLWW reconciles one aggregate table by last-writer-wins. Rows
// present on one side only are copied across; rows on both sides are
// overwritten by the strictly newer one. Timestamp ties are left alone,
// which is what lets two already-converged stores sync to all-zero
// counts. Rows where neither side carries an update timestamp cannot be
// ordered and are skipped (counted, surfaced in the table error).
func mergeLWW[T any](
	local, remote []T,
	key func(T) string,
	updatedMs func(T) int64,
	writeLocal, writeRemote func(T) error,
) (store.TableSyncCounts, int, error) {
	var counts store.TableSyncCounts
	skipped := 0

	localByKey := make(map[string]T, len(local))
	for _, row := range local {
		localByKey[key(row)] = row
	}
	remoteByKey := make(map[string]T, len(remote))
	for _, row := range remote {
		remoteByKey[key(row)] = row
	}

	for k, remoteRow := range remoteByKey {
		localRow, exists := localByKey[k]
		if !exists {
			if err := writeLocal(remoteRow); err != nil {
				return counts, skipped, err
			}
			counts.Pulled++
			continue
		}

		localTs, remoteTs := updatedMs(localRow), updatedMs(remoteRow)
		switch {
		case localTs == 0 && remoteTs == 0:
			skipped++
		case remoteTs > localTs:
			if err := writeLocal(remoteRow); err != nil {
				return counts, skipped, err
			}
			counts.Pulled++
			counts.Merged++
		case localTs > remoteTs:
			if err := writeRemote(localRow); err != nil {
				return counts, skipped, err
			}
			counts.Pushed++
			counts.Merged++
		}
		// Equal timestamps: both sides already hold the winning row.
	}

	for k, localRow := range localByKey {
		if _, exists := remoteByKey[k]; exists {
			continue
		}
		if err := writeRemote(localRow); err != nil {
			return counts, skipped, err
		}
		counts.Pushed++
	}

	return counts, skipped, nil
}

func (s *Synchronizer) syncKeyStats(ctx context.Context) (store.TableSyncCounts, error) {
	local, err := s.local.AllKeyStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}
	remote, err := s.remote.AllKeyStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}

	counts, skipped, err := mergeLWW(local, remote,
		func(k stats.KeyStat) string {
			return strconv.Itoa(int(k.Keycode)) + "|" + string(k.Layout)
		},
		func(k stats.KeyStat) int64 { return k.LastUpdatedMs },
		s.local.UpsertKeyStat,
		s.remote.UpsertKeyStat,
	)
	return counts, wrapSkipped(err, skipped)
}

func (s *Synchronizer) syncDigraphStats(ctx context.Context) (store.TableSyncCounts, error) {
	local, err := s.local.AllDigraphStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}
	remote, err := s.remote.AllDigraphStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}

	counts, skipped, err := mergeLWW(local, remote,
		func(d stats.DigraphStat) string {
			return strconv.Itoa(int(d.FirstKeycode)) + "|" + strconv.Itoa(int(d.SecondKeycode)) + "|" + string(d.Layout)
		},
		func(d stats.DigraphStat) int64 { return d.LastUpdatedMs },
		s.local.UpsertDigraphStat,
		s.remote.UpsertDigraphStat,
	)
	return counts, wrapSkipped(err, skipped)
}

func (s *Synchronizer) syncWordStats(ctx context.Context) (store.TableSyncCounts, error) {
	local, err := s.local.AllWordStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}
	remote, err := s.remote.AllWordStats()
	if err != nil {
		return store.TableSyncCounts{}, err
	}

	counts, skipped, err := mergeLWW(local, remote,
		func(w stats.WordStat) string { return w.Word + "|" + string(w.Layout) },
		func(w stats.WordStat) int64 { return w.LastSeenMs },
		s.local.UpsertWordStat,
		s.remote.UpsertWordStat,
	)
	return counts, wrapSkipped(err, skipped)
}

func (s *Synchronizer) syncDailySummaries(ctx context.Context) (store.TableSyncCounts, error) {
	local, err := s.local.AllDailySummaries()
	if err != nil {
		return store.TableSyncCounts{}, err
	}
	remote, err := s.remote.AllDailySummaries()
	if err != nil {
		return store.TableSyncCounts{}, err
	}

	// Daily summaries have no update timestamp of their own; the date
	// string orders rows well enough that the higher aggregate counts
	// win. Per-field totals can only grow within a day, so prefer the
	// row with more keystrokes, breaking ties toward leaving both as-is.
	counts, _, err := mergeLWW(local, remote,
		func(d stats.DailySummary) string { return d.Date },
		func(d stats.DailySummary) int64 { return d.TotalKeystrokes },
		s.local.UpsertDailySummary,
		s.remote.UpsertDailySummary,
	)
	return counts, err
}

func (s *Synchronizer) syncSettings(ctx context.Context) (store.TableSyncCounts, error) {
	local, err := s.local.AllSettings()
	if err != nil {
		return store.TableSyncCounts{}, err
	}
	remote, err := s.remote.AllSettings()
	if err != nil {
		return store.TableSyncCounts{}, err
	}

	var pulledSettings []store.Setting
	counts, skipped, err := mergeLWW(local, remote,
		func(st store.Setting) string { return st.Key },
		func(st store.Setting) int64 { return st.UpdatedAtMs },
		func(st store.Setting) error {
			if err := s.local.UpsertSetting(st); err != nil {
				return err
			}
			pulledSettings = append(pulledSettings, st)
			return nil
		},
		s.remote.UpsertSetting,
	)
	if err != nil {
		return counts, err
	}

	for _, st := range pulledSettings {
		if err := s.applySettingSideEffect(st); err != nil {
			return counts, err
		}
	}
	return counts, wrapSkipped(nil, skipped)
}

// applySettingSideEffect handles the cross-cutting keys. Enabling
// exclude_names_enabled purges every word stat matching the common-names
// set; disabling only stops future filtering, so nothing is restored.
func (s *Synchronizer) applySettingSideEffect(st store.Setting) error {
	if st.Key != "exclude_names_enabled" || !strings.EqualFold(st.Value, "true") {
		return nil
	}
	if s.excludedNames == nil {
		return nil
	}

	layouts := []keycodes.Layout{keycodes.US, keycodes.DE}
	purged := 0
	for _, name := range s.excludedNames() {
		for _, layout := range layouts {
			if err := s.local.DeleteWordStat(name, layout); err != nil {
				return err
			}
		}
		purged++
	}
	s.log.Info("purged name words after exclude_names_enabled sync", "names", purged)
	return nil
}

func wrapSkipped(err error, skipped int) error {
	if err != nil {
		return err
	}
	if skipped > 0 {
		return &UnresolvableRowsError{Count: skipped}
	}
	return nil
}
