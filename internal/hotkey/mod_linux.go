package hotkey

import "golang.design/x/hotkey"

// Mod1 is Alt on standard X11 keymaps
const altModifier = hotkey.Mod1
