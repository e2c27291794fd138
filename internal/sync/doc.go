// Package sync pushes locally recorded meals, water logs and weight logs to
// the FoodMoment backend.
//
// Overview
//
// Every record is written to the local store first with is_synced=0. A sync
// pass walks the unsynced rows of each table, oldest first, uploads them one
// at a time and marks each row synced once the backend acknowledges it:
//
//	local store (SQLite)
//	     ├── meals          is_synced=0         → POST   /api/v1/meals
//	     ├── meals          pending_deletion=1  → DELETE /api/v1/meals/{id}
//	     ├── water_logs     is_synced=0         → POST   /api/v1/water
//	     └── weight_logs    is_synced=0         → POST   /api/v1/weight
//
// Usage
//
//	database, err := db.Open(path)
//	if err != nil {
//	    return err
//	}
//	client := api.NewClient(baseURL, token, 0)
//	mgr := sync.New(database, client, nil)
//	mgr.SetConnected(true)
//	result, err := mgr.SyncAll(ctx)
//
// Error Handling
//
// A failing record is logged and skipped; it stays unsynced and is retried by
// the next pass. SyncAll only returns an error when no pass ran at all:
// ErrOffline when the manager believes the backend is unreachable and
// ErrInProgress when another pass is already running. Neither is queued.
//
// The backend keys meals by client_id, the id generated on this device. The
// id it answers with is not stored: deletes address the meal by client id.
//
// The manager does not resolve conflicts. Records are only ever created or
// deleted, so the local is_synced flag is the whole protocol.
package sync
