/*
Package patchbay binds a routing graph of audio nodes to a real-time audio
engine.

Concept

A graph is assembled from typed nodes connected through named ports:

    Sources - source input, oscillator, file input;
    Processors - delay, reverb, compressor, filter, equalizer, visualizer;
    Sink - destination.

Every graph carries two distinguished nodes, source and destination. They
are created with the graph and can't be removed.

Graph and engine

Graph is the authoritative state. Mutations are validated first and
applied to the engine second, so graph and engine never diverge: a
connection is recorded only once its engine wiring succeeded.

    g := patchbay.New(memory.Open())
    osc, _ := g.AddNode(node.Oscillator, map[string]float64{"frequency": 220})
    _, err := g.AddConnection(ctx, osc, node.OutputPort, node.DestinationID, node.InputPort)

Nodes commit no engine resources until they take part in a connection.
The first connection opens the engine, every connection resumes it: hosts
usually start engines suspended and allow resuming from a user gesture
only. Each node is materialized into a binding, a chain of engine units
with designated input-facing and output-facing units. The equalizer, for
example, is a chain of low-shelf, peaking and high-shelf filters.

Readiness

Source input and file input nodes depend on external events. Connections
from them fail with ErrNotReady until the capture permission is granted
with RequestSource or GrantSource, or a decoded buffer is supplied with
LoadBuffer or LoadFile.

Errors

Rejected mutations wrap ErrRejected and leave the graph unchanged. Engine
failures are returned as *EngineError. Node and connection removals always
succeed: engine cleanup is best-effort and failures are logged.
*/
package patchbay
