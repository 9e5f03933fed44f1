// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/ecustat/internal/config"
	"github.com/Thermoquad/ecustat/internal/eventlog"
	"github.com/Thermoquad/ecustat/internal/monitoring"
	"github.com/Thermoquad/ecustat/pkg/pipeline"
	"github.com/Thermoquad/ecustat/pkg/speeduino"
)

// pollInterval paces the decode loop. Rendering is throttled separately.
const pollInterval = 10 * time.Millisecond

var (
	monitorTUI           bool
	monitorRecord        string
	monitorEventDB       string
	monitorStatsInterval int
	monitorRequest       bool
	monitorFieldOrder    []string
	monitorReconnect     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor engine telemetry and condition",
	Long: `Decode the ECU stream, classify the engine condition and show a live dashboard.

Binary realtime frames, key=value lines and CSV lines are accepted on the same
stream. With --request the ECU is polled with the realtime command and binary
poll responses are accepted as well.

Console keys:
  d  debug dump (snapshot, counters, last raw bytes)
  r  reset telemetry
  s  force sync loss
  c  clear and redraw the display
  ?  help
  q  quit

Use --record to save snapshots as CBOR for the playback command, and
--event-db to log condition transitions and sync losses to SQLite.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Record snapshots to a CBOR file")
	monitorCmd.Flags().StringVar(&monitorEventDB, "event-db", "", "Log transitions and sync losses to a SQLite database")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics print interval in seconds (text mode, 0 disables)")
	monitorCmd.Flags().BoolVar(&monitorRequest, "request", false, "Poll the ECU with the realtime request command")
	monitorCmd.Flags().StringSliceVar(&monitorFieldOrder, "csv-order", nil, "CSV column order (e.g. RPM,MAP,TPS,CLT,IAT,AFR,BAT)")
	monitorCmd.Flags().BoolVar(&monitorReconnect, "reconnect", true, "Reconnect with backoff when the connection drops")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("record") {
		cfg.Recording.File = monitorRecord
	}
	if flags.Changed("event-db") {
		cfg.Recording.EventDB = monitorEventDB
	}
	if flags.Changed("stats-interval") {
		cfg.Display.StatsIntervalS = monitorStatsInterval
	}
	if flags.Changed("request") {
		cfg.Decoder.Request.Enabled = monitorRequest
	}
	if flags.Changed("csv-order") {
		cfg.Decoder.FieldOrder = monitorFieldOrder
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	config.Normalize(cfg)

	cm, err := newConnectionManager(cfg.Connection)
	if err != nil {
		return err
	}
	defer cm.Close()
	_, connInfo := cm.getConn()

	s, err := newMonitorSession(cfg, cm, connInfo)
	if err != nil {
		return err
	}
	defer s.close()

	if monitorTUI {
		return runDashboard(s, cm, connInfo)
	}
	return runTextMonitor(s, cm, connInfo, time.Duration(cfg.Display.StatsIntervalS)*time.Second)
}

// monitorSession ties a pipeline to its listeners and outputs.
type monitorSession struct {
	pipe  *pipeline.Pipeline
	stats *speeduino.Statistics

	requests   io.Writer
	recorder   *speeduino.Recorder
	recordFile *os.File
	events     *eventlog.Log

	// notify reports transitions and sync losses to the active UI
	notify func(msg string, isError bool)
}

func newMonitorSession(cfg *config.Config, requests io.Writer, source string) (*monitorSession, error) {
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}

	s := &monitorSession{
		stats:    speeduino.NewStatistics(),
		requests: requests,
		notify:   func(string, bool) {},
	}

	if cfg.Recording.EventDB != "" {
		s.events, err = eventlog.Open(cfg.Recording.EventDB, source, time.Now())
		if err != nil {
			return nil, err
		}
	}

	if cfg.Recording.File != "" {
		s.recordFile, err = os.Create(cfg.Recording.File)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create recording: %w", err)
		}
		s.recorder = speeduino.NewRecorder(s.recordFile)
	}

	s.pipe, err = pipeline.New(pcfg, nil,
		pipeline.WithEventHandler(s.handleEvent),
		pipeline.WithTransitionHandler(s.handleTransition),
	)
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *monitorSession) handleEvent(ev speeduino.Event) {
	s.stats.Update(ev)
	if !ev.SyncLost {
		return
	}

	f := s.pipe.Frame()
	s.notify(fmt.Sprintf("Sync lost (%d total)", f.Snapshot.SyncLossCount), true)
	if s.events != nil {
		if err := s.events.RecordSyncLoss(f.At, f.Snapshot.SyncLossCount, s.pipe.RecentBytes()); err != nil {
			monitoring.Logf("event log: %v", err)
		}
	}
}

func (s *monitorSession) handleTransition(t pipeline.Transition) {
	s.notify(fmt.Sprintf("%s -> %s", t.From, t.To), t.To.IsAlarm())
	if s.events != nil {
		if err := s.events.RecordTransition(t); err != nil {
			monitoring.Logf("event log: %v", err)
		}
	}
}

// step runs one pipeline iteration, writes a due poll request and records
// the snapshot when something decoded.
func (s *monitorSession) step(chunk []byte) pipeline.Iteration {
	it := s.pipe.Step(chunk)

	if req, ok := s.pipe.PendingRequest(); ok && s.requests != nil {
		if _, err := s.requests.Write(req); err != nil && !errors.Is(err, ErrConnectionClosed) {
			monitoring.Logf("request write failed: %v", err)
		}
	}

	if s.recorder != nil && it.Decoded > 0 {
		f := s.pipe.Frame()
		if err := s.recorder.Write(speeduino.NewSample(&f.Snapshot, time.Now(), f.State.String())); err != nil {
			monitoring.Logf("recording: %v", err)
		}
	}
	return it
}

const consoleHelp = `Keys: d=debug dump  r=reset telemetry  s=force sync loss  c=clear display  ?=help  q=quit`

// handleKey runs a console command. It returns text to show and whether
// the user asked to quit.
func (s *monitorSession) handleKey(key byte) (string, bool) {
	switch key {
	case 'd', 'D':
		return s.pipe.DebugDump(), false
	case 'r', 'R':
		s.pipe.ResetTelemetry()
		s.stats.Reset()
		return "Telemetry reset", false
	case 's', 'S':
		s.pipe.ForceSyncLoss()
		return "Sync loss forced", false
	case 'c', 'C':
		s.pipe.ClearDisplay()
		return "", false
	case '?', 'h':
		return consoleHelp, false
	case 'q', 'Q', 0x03:
		return "", true
	}
	return "", false
}

func (s *monitorSession) close() {
	if s.recordFile != nil {
		if err := s.recordFile.Close(); err != nil {
			monitoring.Logf("recording: %v", err)
		}
		s.recordFile = nil
	}
	if s.events != nil {
		if err := s.events.Close(time.Now()); err != nil {
			monitoring.Logf("event log: %v", err)
		}
		s.events = nil
	}
}

// loopIO connects the poll loop to a UI.
type loopIO struct {
	keys       <-chan byte
	orders     <-chan speeduino.FieldOrder
	stop       <-chan struct{}
	render     func(pipeline.Frame)
	print      func(string)
	statsEvery time.Duration
	reconnect  bool
}

// run is the cooperative poll loop: drain whatever the reader goroutine
// delivered, step once, render when due. While reconnecting the loop keeps
// stepping so staleness is still classified.
func (s *monitorSession) run(cm *connectionManager, lio loopIO) error {
	conn, _ := cm.getConn()
	dataChan, errChan := startReader(conn)

	done := make(chan struct{})
	defer close(done)
	reconnected := make(chan struct{}, 1)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var statsChan <-chan time.Time
	if lio.statsEvery > 0 {
		statsTicker := time.NewTicker(lio.statsEvery)
		defer statsTicker.Stop()
		statsChan = statsTicker.C
	}

	buf := make([]byte, 0, 4096)
	for {
		select {
		case <-sigChan:
			return nil
		case <-lio.stop:
			return nil
		case err := <-errChan:
			s.drain(dataChan, buf)
			if lio.reconnect {
				lio.print(fmt.Sprintf("Connection lost: %v (reconnecting)", err))
				dataChan, errChan = nil, nil
				go func() {
					if cm.reconnect(done) {
						reconnected <- struct{}{}
					}
				}()
				continue
			}
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				lio.print("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		case <-reconnected:
			conn, connInfo := cm.getConn()
			dataChan, errChan = startReader(conn)
			lio.print("Reconnected: " + connInfo)
		case order := <-lio.orders:
			s.pipe.SetFieldOrder(order)
			lio.print("CSV order: " + order.String())
		case key := <-lio.keys:
			out, quit := s.handleKey(key)
			if quit {
				return nil
			}
			if out != "" {
				lio.print(out)
			}
		case <-statsChan:
			lio.print(s.stats.String())
		case <-ticker.C:
		}

		s.drain(dataChan, buf)
		if s.pipe.RenderDue() {
			f := s.pipe.Frame()
			lio.render(f)
			s.pipe.ConsumeRegions(f.Dirty)
		}
	}
}

// drain collects every pending chunk into one iteration.
func (s *monitorSession) drain(dataChan <-chan []byte, buf []byte) {
	buf = buf[:0]
	for {
		select {
		case chunk := <-dataChan:
			buf = append(buf, chunk...)
		default:
			s.step(buf)
			return
		}
	}
}

func runTextMonitor(s *monitorSession, cm *connectionManager, connInfo string, statsEvery time.Duration) error {
	con := openConsole()
	defer con.restore()
	w := con.out

	fmt.Fprintf(w, "ecustat - Monitor\n")
	fmt.Fprintf(w, "Connection: %s\n", connInfo)
	if statsEvery > 0 {
		fmt.Fprintf(w, "Statistics interval: %v\n", statsEvery)
	}
	fmt.Fprintf(w, "%s\n\n", consoleHelp)

	s.notify = func(msg string, isError bool) {
		fmt.Fprint(w, formatNotice(time.Now(), msg, isError))
	}

	return s.run(cm, loopIO{
		keys:       con.keys,
		render:     newTextRenderer(w).render,
		print:      func(msg string) { fmt.Fprintln(w, msg) },
		statsEvery: statsEvery,
		reconnect:  monitorReconnect,
	})
}
