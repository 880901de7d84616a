// Package controller implements the listener session with a Tellstick Net
// appliance.
//
// A Session owns one UDP socket. Three kinds of goroutine share it:
//
//   - the registration loop, which sends "reglistener" on start and then
//     every RegistrationInterval so the appliance keeps forwarding RF traffic
//   - the receive loop, the only reader, which decodes each datagram from the
//     appliance and delivers a Result in arrival order
//   - one dispatch goroutine per Execute call, which sends an encoded RF
//     command RepeatCount times with RepeatDelay between sends
//
// Writers share a mutex so each datagram is written whole.
//
// # Lifecycle
//
//	Idle ──Start──► Listening ──Close──► Stopped
//
// A stopped session cannot be restarted; build a new one instead.
//
// # Results
//
// An idle period of ReceiveTimeout produces the NoEvent marker so consumers
// can run periodic work without a separate timer:
//
//	for res := range session.Events(ctx) {
//	    switch {
//	    case res.IsNoEvent():
//	        // quiet period
//	    case res.Err != nil:
//	        // undecodable packet, already logged
//	    case res.Event != nil:
//	        handle(*res.Event)
//	    }
//	}
//
// # Commands
//
// Execute supersedes by device: a newer command for the same
// protocol/model/house/unit cancels the repeats still pending for the older
// one.
package controller
