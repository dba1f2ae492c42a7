// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

/*
Package events provides the in-process event bus that decouples write paths
from the background work they trigger.

# Topics

  - graph.changed: a committed rebuild touched a set of nodes. Consumers
    refresh incremental embeddings and the neighbor index.
  - resource.removed: a resource left the library. Consumers drop it from
    the embedding cache, the co-visitation model and profile histories.
  - interaction.tracked: a user interacted with a resource.

# Delivery

The bus is a Watermill router over an in-memory Go channel pub/sub. Each
handler runs behind panic recovery and exponential backoff retry. An event
whose handler still fails after the final retry is logged and acknowledged,
so a single poisoned event never blocks its topic. Payloads that do not
decode or validate are discarded without retry.

Delivery is at-most-once across restarts: nothing is persisted.

# Usage

	bus, err := events.NewBus(events.DefaultConfig(), logger)
	bus.OnGraphChanged("embedding-refresh", func(ctx context.Context, e *events.GraphChanged) error {
	    return embedder.Update(ctx, e.IDs)
	})
	go bus.Run(ctx)
	<-bus.Running()
*/
package events
