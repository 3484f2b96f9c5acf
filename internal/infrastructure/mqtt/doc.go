// Package mqtt publishes packpilot status to an MQTT broker and receives
// remote stop commands.
//
// The client wraps paho.mqtt.golang with auto-reconnect, a retained
// online/offline status on packpilot/system/status (with a Last Will for
// crashes) and subscriptions that are restored after every reconnect.
//
// Topic layout (see Topics):
//
//	packpilot/system/status        retained online/offline status
//	packpilot/events/{device}      one JSON message per engine event
//	packpilot/result/{device}      final task result, retained
//	packpilot/command/stop         "stop everything" request
//	packpilot/command/stop/{device} stop one device
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	dispatcher := events.NewDispatcher(0, mqtt.NewEventSink(client, cfg.MQTT.QoS))
//	err = client.OnStop(func(device string) { supervisor.StopAll() })
package mqtt
