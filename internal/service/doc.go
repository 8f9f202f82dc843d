/*
Package service orchestrates the two rotation stages.

The mutation stage (Rotator) picks fresh decoy domains, records them, rewrites
the proxy server document with new paths, service names and secrets, and
writes the change-set artifact. The patch stage (Propagator) reads that
artifact together with the latest recorded decoys and rewrites the HAProxy
configuration so both sides agree again.

	rotator := service.NewRotator(cfg.Paths, nil, nil, log)
	report, err := rotator.Run(ctx)
	if err != nil {
		os.Exit(errors.ExitCode(err))
	}

	propagator := service.NewPropagator(cfg.Paths, log)
	if _, err := propagator.Run(ctx); err != nil {
		os.Exit(errors.ExitCode(err))
	}

Ordering:

Every input a stage needs is read and validated before the first write.
A failed prerequisite therefore leaves the store, the server document and the
change-set exactly as they were. Once writing starts the order is fixed:
selection, server document, public key, change-set. The public key is never
published before its private half is in the server document. A crash between
the document and the change-set requires a fresh rotation.

Both stages run to completion on the calling goroutine. Context cancellation
is checked between steps; there are no internal timeouts. Each run opens its
own store connection and closes it before returning.
*/
package service
