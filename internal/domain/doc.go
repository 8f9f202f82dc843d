/*
Package domain contains the core entities shared by the rotation stages.

The rotator changes the observable fingerprints of a multi-protocol proxy server
(transport paths, gRPC service names, pre-shared keys, Reality key material and
decoy TLS domains) and propagates the subset a front-facing load balancer must
mirror. This package holds the vocabulary both stages speak:

DecoySelection:
Three pairwise-distinct decoy domains assigned to the reality, shadowtls and
hysteria roles. Only the reality and shadowtls decoys are visible to the load
balancer; Visible strips the hysteria one.

	sel := domain.DecoySelection{Reality: "a.com", ShadowTLS: "b.com", Hysteria: "c.com"}
	if err := sel.Validate(); err != nil {
		// duplicate or empty role
	}

ChangeSet:
The interchange contract between the mutation stage and the patch stage: one
value per endpoint tag. The patch stage may run on a different host at a
different time, so the change-set is the only thing it trusts about the
mutated document.

PatchNote:
Ordered log entries describing each substitution outcome. PATH and HOST notes
are transitions; SAME notes are no-ops; WARN and MISS are non-fatal skips.

Store interfaces:
KeyRecorder, SelectionRecorder and DecoyReader are the narrow views of the
record store that each component depends on.
*/
package domain
