// Copyright © 2018 One Concern

// Package storage defines key/value object stores, used for staged uploads and dataset objects.
//
// Stores are implemented over any afero.Fs by the localfs package, and may be wrapped
// with Instrument to log and time their operations.
package storage
