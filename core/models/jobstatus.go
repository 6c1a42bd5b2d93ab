package models

// JobRef identifies an externally scheduled unit of work.
type JobRef struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace,omitempty"`
}

func (r JobRef) String() string {
	if r.Namespace == "" {
		return r.ID
	}
	return r.Namespace + "/" + r.ID
}

// Flag is a boolean-like status field. The underlying API transmits these
// as the strings "0" and "1"; tolerate that encoding alongside the usual
// spellings.
type Flag string

// Set reports whether the flag is set.
func (f Flag) Set() bool {
	switch f {
	case "1", "true", "True", "TRUE":
		return true
	}
	return false
}

// JobStatus is the tri-state status record read from the external
// scheduler. The three flags are independently readable and not mutually
// exclusive by construction.
type JobStatus struct {
	Active    Flag `json:"active"`
	Succeeded Flag `json:"succeeded"`
	Failed    Flag `json:"failed"`
}
