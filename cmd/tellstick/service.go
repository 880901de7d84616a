package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-tellstick/migrations"

	"github.com/nerrad567/gray-logic-tellstick/internal/api"
	"github.com/nerrad567/gray-logic-tellstick/internal/bridges/hass"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tellstick/internal/scheduler"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/capture"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/sink"
)

const (
	// retentionInterval is how often old captured packets are pruned.
	retentionInterval = time.Hour

	// shutdownTimeout bounds waiting for running scheduled commands.
	shutdownTimeout = 10 * time.Second
)

// errSessionStopped is returned when the session ends before shutdown.
var errSessionStopped = errors.New("session stopped unexpectedly")

// cmdRun runs the gateway until a signal arrives or a component fails.
func cmdRun(ctx context.Context, env *cliEnv, args []string) error {
	fs := env.newFlagSet("run", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting tellstick gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	return runService(ctx, cfg, log)
}

// runService wires the session to every enabled component and pumps
// results until ctx ends. Components are closed in reverse start order.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func runService(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	session, err := openSession(ctx, cfg, log.Component("session"))
	if err != nil {
		return err
	}
	defer closeSession(session, log)

	p := &pump{source: session.RemoteAddr().IP.String(), log: log.Component("pump")}
	var deps api.Deps

	// Capture journal (optional)
	var db *database.DB
	var journal *capture.Journal
	if cfg.Database.Enabled {
		db, err = database.Open(database.ConfigFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		journal = capture.NewJournal(db)
		p.journal = journal
		deps.Journal = journal
		log.Info("capture journal ready", "path", cfg.Database.Path)
	}

	// Home Assistant bridge (optional)
	var entities *hass.Config
	var mqttClient *mqtt.Client
	var bridge *hass.Bridge
	if cfg.HomeAssistant.Enabled {
		entities, err = hass.LoadConfig(cfg.HomeAssistant.EntitiesFile)
		if err != nil {
			return fmt.Errorf("loading entities: %w", err)
		}
		topics := entities.Topics(session.MAC())

		mqttClient, err = mqtt.Connect(cfg.MQTT, topics.Status())
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, err = hass.NewBridge(hass.BridgeOptions{
			Config:     entities,
			MQTTClient: mqttClient,
			Session:    session,
			MAC:        session.MAC(),
			Version:    version,
			Logger:     log.Component("hass"),
		})
		if err != nil {
			return fmt.Errorf("creating bridge: %w", err)
		}
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting bridge: %w", err)
		}
		defer bridge.Stop()
		p.bridge = bridge
		deps.Bridge = bridge
	} else {
		log.Info("Home Assistant bridge disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, influxdb.WithGateway(session.MAC()))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		p.influx = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// NATS fan-out (optional)
	if cfg.NATS.Enabled {
		nc, err := sink.Connect(cfg.NATS, log.Component("nats"))
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Close()

		events, err := sink.New(nc, cfg.NATS.SubjectPrefix, log.Component("nats"))
		if err != nil {
			return fmt.Errorf("creating NATS sink: %w", err)
		}
		if err := events.Serve(session); err != nil {
			return fmt.Errorf("serving NATS commands: %w", err)
		}
		defer events.Close()
		p.sink = events
		log.Info("NATS connected", "url", cfg.NATS.URL, "commands", events.CommandSubject())
	}

	// Scheduled commands (optional)
	if len(cfg.Schedules) > 0 {
		sched, err := startScheduler(cfg, entities, bridge, session, log.Component("scheduler"))
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
		deps.Schedules = sched
	}

	// HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		deps.Config = cfg.API
		deps.WS = cfg.WebSocket
		deps.Security = cfg.Security
		deps.Logger = log.Component("api")
		deps.Session = session
		deps.Version = version

		apiServer, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		p.api = apiServer
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for r := range session.Events(gctx) {
			p.handle(gctx, r)
		}
		if gctx.Err() == nil {
			return errSessionStopped
		}
		return nil
	})
	if journal != nil && cfg.GetRetention() > 0 {
		g.Go(func() error {
			journal.Retain(gctx, cfg.GetRetention(), retentionInterval, func(removed int64, err error) {
				if err != nil {
					log.Error("pruning capture journal failed", "error", err)
					return
				}
				log.Info("pruned capture journal", "removed", removed)
			})
			return nil
		})
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}

// startScheduler loads the scheduled commands. Commands go through the
// bridge when it runs, otherwise straight to the session using the
// entities file.
func startScheduler(cfg *config.Config, entities *hass.Config, bridge *hass.Bridge, session *controller.Session, log *logging.Logger) (*scheduler.Scheduler, error) {
	var cmd scheduler.Commander
	if bridge != nil {
		cmd = bridge
	} else {
		if entities == nil {
			var err error
			if entities, err = hass.LoadConfig(cfg.HomeAssistant.EntitiesFile); err != nil {
				return nil, fmt.Errorf("loading entities for schedules: %w", err)
			}
		}
		cmd = entityCommander{entities: entities, session: session}
	}

	sched, err := scheduler.New(cmd, log)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Load(cfg.Schedules); err != nil {
		return nil, fmt.Errorf("loading schedules: %w", err)
	}
	sched.Start()
	log.Info("scheduler started", "jobs", sched.Len())
	return sched, nil
}

// entityCommander resolves entities from the entities file and executes
// on the session directly.
type entityCommander struct {
	entities *hass.Config
	session  interface {
		Execute(ctx context.Context, req controller.CommandRequest) error
	}
}

func (c entityCommander) Command(ctx context.Context, ref string, method protocol.Method, param int) error {
	req, err := c.entities.Request(ref, method, param)
	if err != nil {
		return err
	}
	return c.session.Execute(ctx, req)
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled components are nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// Pump targets. Each is optional.
type (
	packetRecorder interface {
		Record(ctx context.Context, p capture.Packet) (int64, error)
	}
	eventHandler interface {
		HandleEvent(ev protocol.Event) bool
	}
	eventWriter interface {
		WriteEvent(ev protocol.Event)
	}
	eventPublisher interface {
		Publish(ev protocol.Event) error
	}
	resultObserver interface {
		Observe(r controller.Result)
	}
)

// pump fans session results out to the enabled components.
type pump struct {
	source  string
	journal packetRecorder
	bridge  eventHandler
	influx  eventWriter
	sink    eventPublisher
	api     resultObserver
	log     *logging.Logger
}

// handle delivers one result. Component failures are logged and do not
// stop the pump.
func (p *pump) handle(ctx context.Context, r controller.Result) {
	if r.IsNoEvent() {
		return
	}

	if p.journal != nil {
		if pkt, ok := capture.FromResult(r, p.source); ok {
			if _, err := p.journal.Record(ctx, pkt); err != nil {
				p.log.Error("recording packet failed", "error", err)
			}
		}
	}
	if p.api != nil {
		p.api.Observe(r)
	}

	if r.Err != nil {
		p.log.Debug("undecodable packet", "raw", string(r.Raw), "error", r.Err)
		return
	}
	if r.Event == nil {
		return
	}
	ev := *r.Event

	if p.bridge != nil {
		p.bridge.HandleEvent(ev)
	}
	if p.influx != nil {
		p.influx.WriteEvent(ev)
	}
	if p.sink != nil {
		if err := p.sink.Publish(ev); err != nil {
			p.log.Warn("publishing event failed", "error", err)
		}
	}
}
