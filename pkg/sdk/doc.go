// Package swarmkb is a Go client for a swarmkb node's HTTP API.
//
// A node answers CRUD commands, distributed queries, template uploads and
// metadata lookups under a context prefix (default "swarmkb"):
//
//	client, _ := swarmkb.New("http://node-a:8080", swarmkb.WithAPIKey(key))
//	_, _ = client.Put(ctx, "dsswres", []map[string]any{{"name": "Solar Panel A"}})
//	docs, _ := client.Get(ctx, "dsswres", []map[string]any{{"name": "Solar Panel A"}})
//
// # Distributed queries
//
//	res, _ := client.Query(ctx, "dsswres", criteria, swarmkb.QueryOptions{
//	    Strategy:    swarmkb.ParallelMerge,
//	    Consistency: swarmkb.BestEffort,
//	    TimeBudgetMS: 2000,
//	})
//	if res.Meta.Truncated {
//	    // some peers did not answer in time; res.Meta.Errors says which
//	}
//
// Errors returned by the node unwrap to the sentinels of this package,
// so callers can test them with errors.Is.
package swarmkb
