package proto

// Control bytes used by MicroPython's REPL, per spec.md §4.3/§4.4.
const (
	CtrlA = 0x01 // enter raw REPL
	CtrlB = 0x02 // exit raw REPL, back to friendly REPL
	CtrlC = 0x03 // interrupt running code / KeyboardInterrupt
	CtrlD = 0x04 // soft reboot (friendly REPL) / end-of-submission (raw REPL)
	CtrlE = 0x05 // begin raw-paste probe
)

// RawPasteProbe is sent to ask a raw-REPL device whether it understands
// the flow-controlled raw-paste submission mode.
var RawPasteProbe = []byte{CtrlE, 'A', CtrlA}

// RawReplBanner is printed by the device immediately after CtrlA takes it
// from FriendlyRepl into RawRepl.
var RawReplBanner = []byte("raw REPL; CTRL-B to exit\r\n>")

// SoftRebootBanner is printed after CtrlD triggers a soft reboot back to
// the friendly REPL's ">>> " prompt.
var SoftRebootBanner = []byte("soft reboot\r\n")

// PasteAck is the prefix of a device's response to RawPasteProbe when it
// supports raw-paste mode. Two further bytes (window size, little-endian)
// and one increment byte follow it.
var PasteAck = []byte{'R', 0x01}

// PasteNak is the device's response when it does not support raw-paste
// mode; the caller stays in plain RawRepl.
var PasteNak = []byte{'R', 0x00}
