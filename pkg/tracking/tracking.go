// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package tracking

import "context"

// Event is a single usage event.
type Event struct {
	Name       string
	Properties map[string]string
}

// Track records an event. Implementations must tolerate a nil
// Properties map.
type Track func(ctx context.Context, event *Event) error

// NopTrack discards all events.
func NopTrack(ctx context.Context, event *Event) error {
	return nil
}
