package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nerrad567/gray-logic-tellstick/internal/api"
	"github.com/nerrad567/gray-logic-tellstick/internal/bridges/hass"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/capture"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/discovery"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// cmdDiscover prints every appliance that answers a probe.
func cmdDiscover(ctx context.Context, env *cliEnv, args []string) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}

	fs := env.newFlagSet("discover", "")
	ip := fs.String("ip", "", "probe a single address instead of broadcasting")
	timeout := fs.Duration("timeout", cfg.GetDiscoveryTimeout(), "quiet period that ends discovery")
	asJSON := fs.Bool("json", false, "print devices as JSON lines")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	log := toolLogger(cfg)
	devices, err := discovery.Discover(ctx, discovery.Config{
		Target:  *ip,
		Port:    cfg.Tellstick.DiscoveryPort,
		Timeout: *timeout,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(env.stdout)
	for _, d := range devices {
		if *asJSON {
			if err := enc.Encode(d); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(env.stdout, d.String())
	}
	return nil
}

// streamResults opens a session and calls fn for every result until ctx
// ends or fn fails. NoEvent markers are skipped.
func streamResults(ctx context.Context, env *cliEnv, fn func(controller.Result) error) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}
	log := toolLogger(cfg)

	session, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSession(session, log)

	for r := range session.Events(ctx) {
		if r.IsNoEvent() {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// cmdListen prints decoded events as JSON lines. Undecodable packets are
// logged.
func cmdListen(ctx context.Context, env *cliEnv, args []string) error {
	fs := env.newFlagSet("listen", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	enc := json.NewEncoder(env.stdout)
	return streamResults(ctx, env, func(r controller.Result) error {
		if r.Err != nil {
			fmt.Fprintf(env.stderr, "undecodable packet %q: %v\n", r.Raw, r.Err)
			return nil
		}
		if r.Event == nil {
			return nil
		}
		return enc.Encode(r.Event)
	})
}

// cmdMeasurements prints one JSON line per sensor value.
func cmdMeasurements(ctx context.Context, env *cliEnv, args []string) error {
	fs := env.newFlagSet("measurements", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	enc := json.NewEncoder(env.stdout)
	return streamResults(ctx, env, func(r controller.Result) error {
		if r.Event == nil {
			return nil
		}
		for _, m := range r.Event.Measurements() {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		return nil
	})
}

// cmdRaw prints every received packet as a capture line that parse can
// replay.
func cmdRaw(ctx context.Context, env *cliEnv, args []string) error {
	fs := env.newFlagSet("raw", "")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	return streamResults(ctx, env, func(r controller.Result) error {
		return capture.WriteLine(env.stdout, r.Received, r.Raw)
	})
}

// cmdParse decodes capture lines from a file or stdin.
func cmdParse(ctx context.Context, env *cliEnv, args []string) error {
	fs := env.newFlagSet("parse", "[file]")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var in io.Reader = env.stdin
	if path := fs.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening capture: %w", err)
		}
		defer f.Close()
		in = f
	}

	enc := json.NewEncoder(env.stdout)
	return capture.Replay(ctx, in, protocol.NewRegistry(), func(r controller.Result) error {
		if r.Err != nil {
			fmt.Fprintf(env.stderr, "undecodable packet %q: %v\n", r.Raw, r.Err)
			return nil
		}
		if r.Event == nil {
			return nil
		}
		return enc.Encode(r.Event)
	})
}

// cmdMock answers discovery probes until interrupted.
func cmdMock(ctx context.Context, env *cliEnv, args []string) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}

	fs := env.newFlagSet("mock", "")
	addr := fs.String("addr", fmt.Sprintf(":%d", cfg.Tellstick.DiscoveryPort), "listen address")
	reply := fs.String("reply", "", "discovery reply record (default TellStickNet:MAC:CODE:17)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	log := toolLogger(cfg)
	responder, err := discovery.NewResponder(discovery.ResponderConfig{
		Addr:   *addr,
		Reply:  *reply,
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer responder.Close()

	err = responder.Serve(ctx)
	log.Info("responder stopped", "answered", responder.Answered())
	return err
}

// cmdSend transmits one command and waits for its repeats.
func cmdSend(ctx context.Context, env *cliEnv, args []string) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}

	fs := env.newFlagSet("send", "")
	entity := fs.String("entity", "", "entity name or unique id from the entities file")
	proto := fs.String("protocol", "", "protocol, when not using -entity")
	model := fs.String("model", "", "model, when not using -entity")
	house := fs.String("house", "", "house code, when not using -entity")
	unit := fs.Int("unit", 0, "unit, when not using -entity")
	methodName := fs.String("method", "", "turnon, turnoff, dim, bell, learn, ...")
	param := fs.Int("param", 0, "dim level 0-255")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	method, err := protocol.ParseMethod(*methodName)
	if err != nil {
		return err
	}

	var req controller.CommandRequest
	switch {
	case *entity != "":
		hcfg, err := hass.LoadConfig(cfg.HomeAssistant.EntitiesFile)
		if err != nil {
			return fmt.Errorf("loading entities: %w", err)
		}
		if req, err = hcfg.Request(*entity, method, *param); err != nil {
			return err
		}
	case *proto != "" && *house != "":
		req = controller.CommandRequest{
			Protocol: *proto,
			Model:    *model,
			House:    *house,
			Unit:     *unit,
			Method:   method,
			Param:    *param,
		}
	default:
		fs.Usage()
		return errUsage
	}

	log := toolLogger(cfg)
	session, err := openSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSession(session, log)

	if err := session.Execute(ctx, req); err != nil {
		return err
	}
	session.Wait()
	fmt.Fprintf(env.stdout, "sent %s to %s\n", req.Method, req.Key())
	return nil
}

// cmdToken prints an API bearer token signed with the configured secret.
func cmdToken(_ context.Context, env *cliEnv, args []string) error {
	cfg, err := env.loadConfig()
	if err != nil {
		return err
	}

	fs := env.newFlagSet("token", "")
	subject := fs.String("subject", "cli", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime; 0 never expires")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, token)
	return nil
}
