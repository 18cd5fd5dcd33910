package health

import "time"

func NewHealthy(component, message string) Status {
	return Status{Component: component, Healthy: true, Status: "healthy", Message: message, Timestamp: time.Now()}
}

func NewUnhealthy(component, message string) Status {
	return Status{Component: component, Healthy: false, Status: "unhealthy", Message: message, Timestamp: time.Now()}
}

func NewDegraded(component, message string) Status {
	return Status{Component: component, Healthy: false, Status: "degraded", Message: message, Timestamp: time.Now()}
}

// Aggregate folds sub-statuses into one: any unhealthy sub-status makes the
// whole unhealthy, any degraded (with nothing unhealthy) makes it degraded.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no sub-components")
	}

	hasUnhealthy, hasDegraded := false, false
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			hasUnhealthy = true
		case sub.IsDegraded():
			hasDegraded = true
		}
	}

	var status Status
	switch {
	case hasUnhealthy:
		status = NewUnhealthy(component, "one or more sub-components are unhealthy")
	case hasDegraded:
		status = NewDegraded(component, "one or more sub-components are degraded")
	default:
		status = NewHealthy(component, "all sub-components are healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	return status
}
