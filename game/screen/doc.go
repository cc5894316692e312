// Package screen holds the menu, racing and results screens shared by the
// local clients.
//
// A Flow owns at most one race. Menu selections and the confirm and escape
// keys are handled here and never reach the race itself, which only sees
// driving input through Tick.
//
//	Menu --Select--> Racing --finish--> Results --Confirm--> Racing
//	  ^                 |                  |
//	  +------Escape-----+------Escape------+
package screen
