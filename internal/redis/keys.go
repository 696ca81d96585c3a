package redis

import "fmt"

const ns = "ridego:v1"

func KeyRideSummary(rideID int64) string {
	return fmt.Sprintf("%s:ride:%d:summary", ns, rideID)
}

func KeyRideAvailability(rideID int64) string {
	return fmt.Sprintf("%s:ride:%d:availability", ns, rideID)
}

func ChannelRidesChanged() string {
	return ns + ":rides:changed"
}
