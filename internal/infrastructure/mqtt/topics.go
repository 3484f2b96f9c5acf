package mqtt

import "strings"

// TopicPrefix is the root of every packpilot topic.
const TopicPrefix = "packpilot"

// Topics builds packpilot topic names.
type Topics struct{}

// SystemStatus is the retained online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Events is the per-device event stream.
//
// Example: packpilot/events/127.0.0.1_16384
func (Topics) Events(device string) string {
	return TopicPrefix + "/events/" + topicSegment(device)
}

// Result is the per-device final result topic.
func (Topics) Result(device string) string {
	return TopicPrefix + "/result/" + topicSegment(device)
}

// Stop is the topic that requests cancellation of every running task.
func (Topics) Stop() string {
	return TopicPrefix + "/command/stop"
}

// StopDevice requests cancellation of one device's task.
func (Topics) StopDevice(device string) string {
	return Topics{}.Stop() + "/" + topicSegment(device)
}

// AllStops matches Stop and every StopDevice topic.
func (Topics) AllStops() string {
	return Topics{}.Stop() + "/#"
}

// DeviceFromStop returns the device segment of a stop topic, or "" for the
// global stop topic.
func (Topics) DeviceFromStop(topic string) string {
	rest, ok := strings.CutPrefix(topic, Topics{}.Stop()+"/")
	if !ok {
		return ""
	}
	return rest
}

// topicSegment makes a device serial safe for use as one topic level.
// Serials like "127.0.0.1:5555" contain no MQTT wildcards but ':' and '/'
// are awkward in ACLs, so both become '_'.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", ":", "_", "+", "_", "#", "_").Replace(s)
}
