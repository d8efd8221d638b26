// Package storage provides the brokers the publish step uses to upload,
// delete, and query published objects.
//
// A Broker exposes the minimum capability surface the engine requires:
// Put, Delete, and a prefix Query returning remote file metadata. Brokers
// exist for a local directory tree (file://) and S3 (s3://bucket/prefix).
// Collection-level helpers apply a broker to every pending member of a
// collection, recording per-file failures on the files themselves so one
// bad file never blocks the rest.
package storage
