package model

// Department groups members under one or more leads.
type Department struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Leads       []User `json:"leads,omitempty"`
	Members     []User `json:"members"`
}

// HasMember reports whether userID is listed among the members.
func (d Department) HasMember(userID string) bool {
	for _, m := range d.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with d.
func (d Department) Clone() Department {
	out := d
	out.Leads = append([]User(nil), d.Leads...)
	out.Members = append([]User(nil), d.Members...)
	return out
}

// DepartmentName is the entry returned by the public names listing used on
// the registration form.
type DepartmentName struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}
