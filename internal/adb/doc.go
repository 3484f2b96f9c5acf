// Package adb drives Android devices through the adb command-line tool.
//
// Client runs adb commands, optionally escalating shell commands with
// "su -c" on rooted emulators. Driver binds a Client to one device serial
// and implements the automation driver contract: screen capture, taps,
// swipes, text entry, and app and file management. Server optionally
// supervises a foreground "adb nodaemon server" so the engine does not
// depend on a daemon started elsewhere.
package adb
