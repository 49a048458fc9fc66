// mdk is the MARC Development Kit. It decodes ISO 2709 records (MARC21,
// MAB, MAB diskette and PICA dialects), routes their fields through a
// specification to element handlers, and builds one graph per record which
// is handed to a Sink.
//
// The ingest pipeline has the following stages.
//
// 1. Source
//
//	A mdk.Source gets records out of wherever they live - files, S3
//	buckets, Kafka topics, HTTP requests - one at a time. Sources only
//	frame records (find where one ends and the next begins, see
//	RecordReader); they do not decode them. Decoding is comparatively
//	expensive and happens on the workers, so that a single producer can
//	keep many workers busy.
//
// 2. JobQueue
//
//	The JobQueue hands framed records to a fixed number of workers. It has
//	no buffer: a producer that is faster than the workers waits, and gives
//	up with ErrQueueSaturation after a timeout. Drain shuts the workers
//	down after they finished everything already accepted.
//
// 3. Decoder and FieldAccumulator
//
//	On a worker the Decoder turns the raw record into a stream of
//	structural events (begin record, leader, control field, data field,
//	subfield, ...), and the FieldAccumulator groups the fields into
//	FieldGroups: the physically adjacent fields sharing a tag.
//
// 4. SpecificationIndex and ElementHandlers
//
//	Every group is resolved against the SpecificationIndex by longest
//	matching key prefix (tag, indicator, subfield codes) and the handler
//	found writes into the record's graph through a BuildState. Keys nobody
//	handles are reported to an UnmappedKeyListener. Specifications are
//	usually loaded from JSON or YAML files with a SpecLoader.
//
// 5. Sink
//
//	The finished, frozen graph (an *Entity) goes to a Sink: a JSON-LD
//	writer, BoltDB, Pilosa, Kafka, NATS or Avro, see the sub-packages.
package mdk
