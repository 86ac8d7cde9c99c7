package hotkey

import "runtime"

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OS          string  `json:"os,omitempty"` // empty applies everywhere
	Binding     Binding `json:"binding"`
}

// knownConflicts lists system and common application shortcuts
var knownConflicts = []ConflictInfo{
	{
		Name:        "Task Manager",
		Description: "Windows Task Manager",
		OS:          "windows",
		Binding:     Binding{Ctrl: true, Shift: true, Key: "Escape"},
	},
	{
		Name:        "Close Window",
		Description: "Windows close active window",
		OS:          "windows",
		Binding:     Binding{Alt: true, Key: "F4"},
	},
	{
		Name:        "Security Screen",
		Description: "Ctrl+Alt+Delete",
		OS:          "windows",
		Binding:     Binding{Ctrl: true, Alt: true, Key: "Delete"},
	},
	{
		Name:        "Terminal",
		Description: "GNOME/Ubuntu open terminal",
		OS:          "linux",
		Binding:     Binding{Ctrl: true, Alt: true, Key: "T"},
	},
	{
		Name:        "Lock Screen",
		Description: "GNOME/Ubuntu lock screen",
		OS:          "linux",
		Binding:     Binding{Ctrl: true, Alt: true, Key: "L"},
	},
	{
		Name:        "Run Command",
		Description: "GNOME run dialog",
		OS:          "linux",
		Binding:     Binding{Alt: true, Key: "F2"},
	},
	{
		Name:        "Input Source",
		Description: "macOS select previous input source",
		OS:          "darwin",
		Binding:     Binding{Ctrl: true, Key: "Space"},
	},
	{
		Name:        "Reopen Tab",
		Description: "Browser reopen closed tab",
		Binding:     Binding{Ctrl: true, Shift: true, Key: "T"},
	},
	{
		Name:        "Private Window",
		Description: "Browser new incognito/private window",
		Binding:     Binding{Ctrl: true, Shift: true, Key: "N"},
	},
	{
		Name:        "Developer Tools",
		Description: "Browser developer tools",
		Binding:     Binding{Ctrl: true, Shift: true, Key: "I"},
	},
}

// CheckConflicts returns the known shortcuts on this OS that b would shadow
func CheckConflicts(b Binding) []ConflictInfo {
	return conflictsOn(runtime.GOOS, b)
}

func conflictsOn(goos string, b Binding) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if known.OS != "" && known.OS != goos {
			continue
		}
		if known.Binding.Equal(b) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}
