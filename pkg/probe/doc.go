/*
Package probe wraps the external stream admin the scheduler core queries
for size and wall-clock observations (spec §4.4, §6 StreamAdmin).

LocalDirAdmin is the reference implementation: it treats each stream as a
directory and sums file sizes beneath it. TimedProbe pairs any SizeProbe
with a clock to produce the (size, ts) pair pkg/scheduler feeds into a
Subscriber.
*/
package probe
