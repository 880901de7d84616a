package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/discovery"
)

// target is the appliance a session talks to.
type target struct {
	host string
	mac  string
}

// resolveTarget returns the configured appliance, discovering it when no
// host is set. With a host but no MAC, a unicast probe learns the MAC;
// failing that the session runs without one.
func resolveTarget(ctx context.Context, cfg *config.Config, log *logging.Logger) (target, error) {
	tc := cfg.Tellstick
	if tc.Host != "" && tc.MAC != "" {
		return target{host: tc.Host, mac: tc.MAC}, nil
	}

	dcfg := discovery.Config{
		Port:    tc.DiscoveryPort,
		Timeout: cfg.GetDiscoveryTimeout(),
		Logger:  log,
	}
	if tc.Host != "" {
		dcfg.Target = tc.Host
		devices, err := discovery.Discover(ctx, dcfg)
		if err != nil || len(devices) == 0 {
			log.Warn("appliance did not answer discovery, MAC unknown", "host", tc.Host, "error", err)
			return target{host: tc.Host}, nil
		}
		return target{host: tc.Host, mac: devices[0].MAC}, nil
	}

	log.Info("discovering appliance", "timeout", dcfg.Timeout)
	devices, err := discovery.Discover(ctx, dcfg)
	if err != nil {
		return target{}, fmt.Errorf("discovering appliance: %w", err)
	}
	dev, err := selectDevice(devices, tc.MAC)
	if err != nil {
		return target{}, err
	}
	log.Info("appliance found", "device", dev.String())
	return target{host: dev.IP.String(), mac: dev.MAC}, nil
}

// selectDevice picks the appliance with the given MAC, or the first one
// when mac is empty.
func selectDevice(devices []discovery.Device, mac string) (discovery.Device, error) {
	if len(devices) == 0 {
		return discovery.Device{}, discovery.ErrNoDeviceFound
	}
	if mac == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if strings.EqualFold(d.MAC, mac) {
			return d, nil
		}
	}
	return discovery.Device{}, fmt.Errorf("%w: no appliance with MAC %s", discovery.ErrNoDeviceFound, mac)
}

// sessionConfig maps the tellstick section onto a session configuration.
func sessionConfig(cfg *config.Config, t target, log *logging.Logger) controller.Config {
	delay := cfg.GetRepeatDelay()
	if delay == 0 {
		// Zero in the file means back to back; the session reads zero as
		// its default.
		delay = -1
	}
	return controller.Config{
		Host:                 t.host,
		MAC:                  t.mac,
		Port:                 cfg.Tellstick.CommandPort,
		ListenAddr:           cfg.Tellstick.ListenAddr,
		RegistrationInterval: cfg.GetRegistrationInterval(),
		ReceiveTimeout:       cfg.GetRecvTimeout(),
		RepeatCount:          cfg.Tellstick.RepeatCount,
		RepeatDelay:          delay,
		Logger:               log,
	}
}

// openSession resolves the appliance and starts a listening session.
func openSession(ctx context.Context, cfg *config.Config, log *logging.Logger) (*controller.Session, error) {
	t, err := resolveTarget(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	session, err := controller.New(sessionConfig(cfg, t, log))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	log.Info("session listening", "host", t.host, "mac", t.mac)
	return session, nil
}

// closeSession closes the session, ignoring a session that already closed
// itself when ctx ended.
func closeSession(session *controller.Session, log *logging.Logger) {
	if err := session.Close(); err != nil && !errors.Is(err, controller.ErrSessionClosed) {
		log.Error("error closing session", "error", err)
	}
}
