package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/brunovale/escriba/internal/bus"
	"github.com/brunovale/escriba/internal/config"
	"github.com/brunovale/escriba/internal/docgen"
	"github.com/brunovale/escriba/internal/history"
	"github.com/brunovale/escriba/internal/llm"
	"github.com/brunovale/escriba/internal/notify"
	"github.com/brunovale/escriba/internal/pipeline"
)

// Daemon owns the control socket and at most one encounter session at a time.
type Daemon struct {
	mu      sync.Mutex
	manager *config.Manager
	store   *history.Store
	version string

	ctx    context.Context
	cancel context.CancelFunc

	pipeline pipeline.Pipeline
}

func New(manager *config.Manager, version string) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		manager: manager,
		version: version,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Daemon) status() pipeline.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return pipeline.Idle
	}
	return d.pipeline.Status()
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.openHistory(); err != nil {
		log.Printf("daemon: history store unavailable, encounters will not be persisted: %v", err)
	}
	defer func() {
		if d.store != nil {
			d.store.Close()
		}
	}()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("daemon: config watch failed: %v", err)
	}
	defer d.manager.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("daemon: received signal %v, shutting down", sig)
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("daemon: started, listening on control socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("daemon: shutdown requested")
				d.stopPipeline()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) openHistory() error {
	cfg := d.manager.GetConfig()
	if !cfg.History.Enabled {
		return nil
	}

	path := cfg.History.Path
	if path == "" {
		var err error
		path, err = config.DefaultHistoryPath()
		if err != nil {
			return err
		}
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	d.store = store
	return nil
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}

	verb, args := bus.ParseCommand(line)
	switch verb {
	case bus.CmdToggle:
		resp := d.toggle(args)
		fmt.Fprintf(c, "%s\n", resp)
	case bus.CmdCancel:
		resp := d.cancelEncounter()
		fmt.Fprintf(c, "%s\n", resp)
	case bus.CmdStatus:
		status := d.status()
		d.mu.Lock()
		p := d.pipeline
		d.mu.Unlock()
		if status == pipeline.Recording && p != nil {
			fmt.Fprintf(c, "STATUS status=%s level=%.2f\n", status, p.Level())
		} else {
			fmt.Fprintf(c, "STATUS status=%s\n", status)
		}
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s version=%s\n", bus.ProtoVer, d.version)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("daemon: unknown command: %q", verb)
		fmt.Fprintf(c, "ERR unknown=%q\n", verb)
	}
}

// toggle starts an encounter when idle and finishes it while recording. The
// optional argument names the patient for history lookup and persistence.
func (d *Daemon) toggle(args []string) string {
	patient := ""
	if len(args) > 0 {
		patient = args[0]
	}

	switch d.status() {
	case pipeline.Idle:
		if err := d.startEncounter(patient); err != nil {
			log.Printf("daemon: failed to start encounter: %v", err)
			return fmt.Sprintf("ERR start_failed: %v", err)
		}
		return "OK recording"

	case pipeline.Recording:
		d.mu.Lock()
		p := d.pipeline
		d.mu.Unlock()
		if p != nil {
			p.Actions() <- pipeline.Finish
		}
		return "OK finishing"

	default:
		// transcribing or generating; the encounter finishes on its own
		return fmt.Sprintf("ERR busy status=%s", d.status())
	}
}

func (d *Daemon) cancelEncounter() string {
	d.mu.Lock()
	p := d.pipeline
	d.mu.Unlock()

	if p == nil || p.Status() == pipeline.Idle {
		return "ERR not_running"
	}
	p.Actions() <- pipeline.Cancel
	return "OK cancelled"
}

func (d *Daemon) startEncounter(patient string) error {
	cfg := d.manager.GetConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
	if err != nil {
		return err
	}

	var loader docgen.HistoryLoader
	if d.store != nil {
		loader = history.NewLoader(d.store)
	}

	p := pipeline.New(pipeline.Config{
		Recording:      cfg.ToRecordingConfig(),
		Transcriber:    cfg.ToTranscriberConfig(),
		Generator:      docgen.New(adapter, loader),
		Documents:      cfg.DocumentTypes(),
		Store:          d.store,
		Notifier:       d.notifier(cfg),
		Patient:        patient,
		ReviewRequired: cfg.Generation.ReviewRequired,
		UseHistory:     cfg.Generation.UseHistory && patient != "",
	})

	d.mu.Lock()
	d.pipeline = p
	d.mu.Unlock()

	p.Run(d.ctx)
	go d.collect(p, cfg)
	return nil
}

// collect waits for the encounter result and writes the finished documents.
func (d *Daemon) collect(p pipeline.Pipeline, cfg *config.Config) {
	select {
	case result := <-p.Results():
		if result.Err != nil {
			log.Printf("daemon: encounter ended with error: %v", result.Err)
			break
		}
		dir, err := writeArtifacts(cfg.Generation.OutputDir, result)
		if err != nil {
			log.Printf("daemon: failed to write documents: %v", err)
			break
		}
		log.Printf("daemon: encounter complete, documents in %s", dir)
	case <-d.ctx.Done():
	}

	d.mu.Lock()
	if d.pipeline == p {
		d.pipeline = nil
	}
	d.mu.Unlock()
}

func (d *Daemon) notifier(cfg *config.Config) notify.Notifier {
	if !cfg.Notifications.Enabled {
		return notify.Nop{}
	}
	return notify.New(cfg.Notifications.Type)
}

func (d *Daemon) stopPipeline() {
	d.mu.Lock()
	p := d.pipeline
	d.pipeline = nil
	d.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}
