package services

// Delivery is how a single publish attempt reaches the platform.
type Delivery int

const (
	// DeliveryReal calls the platform with the owner's credentials.
	DeliveryReal Delivery = iota
	// DeliverySimulatedGlobal is forced by the process-wide simulation flag.
	DeliverySimulatedGlobal
	// DeliverySimulatedNoCredentials is a downgrade because the owner has
	// no usable credentials.
	DeliverySimulatedNoCredentials
)

// Simulated reports whether d fabricates the result locally.
func (d Delivery) Simulated() bool { return d != DeliveryReal }

func (d Delivery) String() string {
	switch d {
	case DeliveryReal:
		return "real"
	case DeliverySimulatedGlobal:
		return "simulated_global"
	case DeliverySimulatedNoCredentials:
		return "simulated_no_credentials"
	}
	return "unknown"
}

// ResolveDelivery decides per item: simulated when the global flag is on or
// the owner cannot publish for real.
func ResolveDelivery(globalSimulation, hasCredentials bool) Delivery {
	switch {
	case globalSimulation:
		return DeliverySimulatedGlobal
	case !hasCredentials:
		return DeliverySimulatedNoCredentials
	default:
		return DeliveryReal
	}
}
