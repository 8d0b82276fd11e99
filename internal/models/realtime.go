/**
 * Copyright 2025-present Finlink Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "encoding/json"

// Change types emitted by the realtime push API.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// ChangeEvent is a single row-level change pushed for a subscribed table.
// Record holds the new row (insert/update); Old holds the previous row
// keys (update/delete). Both are raw so each feed decodes its own shape.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record,omitempty"`
	Old    json.RawMessage `json:"old_record,omitempty"`
}

// StreamInfo describes one realtime subscription: a table plus an
// optional row filter (e.g. "profile_id=eq.<user>").
type StreamInfo struct {
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}
