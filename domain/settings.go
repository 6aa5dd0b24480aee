package domain

// Settings represents user configurable options.
type Settings struct {
	VelocityWindowDays int  `json:"velocityWindowDays"`
	ShowDoneTasks      bool `json:"displayDoneTasks"`
}
