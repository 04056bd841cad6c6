package domain

// Status is the provisioning state of a node as displayed by the session.
// It is a closed enum: anything the server reports outside this set
// collapses to StatusNotReady.
type Status string

const (
	StatusNotReady            Status = "not_ready"
	StatusProvisioning        Status = "provisioning"
	StatusReady               Status = "ready"
	StatusDeprovisioning      Status = "deprovisioning"
	StatusProvisioningError   Status = "provisioning_error"
	StatusDeprovisioningError Status = "deprovisioning_error"
)

// ParseStatus maps a raw server-reported state onto the closed Status enum.
// Unmapped values collapse to StatusNotReady rather than leaking raw strings
// into the model.
func ParseStatus(raw string) Status {
	switch Status(raw) {
	case StatusNotReady, StatusProvisioning, StatusReady,
		StatusDeprovisioning, StatusProvisioningError, StatusDeprovisioningError:
		return Status(raw)
	default:
		return StatusNotReady
	}
}

// IsError reports whether the status is one of the two failure states.
func (s Status) IsError() bool {
	return s == StatusProvisioningError || s == StatusDeprovisioningError
}

// SaveState describes where the session's save scheduler currently is.
// It is an optimistic UI signal: Saving is surfaced as soon as a
// persistence-worthy mutation lands, before the request goes out.
type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)
