/*
Package yquery offers tables of strongly-typed rows on top of a replicated
document (package ydoc).

We implement:

1. Tables, declared with a schema describing how each row decomposes into
the document's shared containers.

2. Mutations: Upsert, Update and Remove, each running as one document
transaction.

3. Filters, composable predicates over a row's inline fields.

4. Point reads and Select.

5. Watchers: live filtered subscriptions delivering added, removed and
changed rows, at a configurable change-detection level.

# Technical Details

**Layout.**
A table named T keeps an index map container at path T whose keys are the
live row keys (values are the sentinel true). The row with key K is a map
container at path T.K; primitive and shallow fields are stored inline in
it, records and tagged unions become child containers at T.K.F, and raw
container fields (maps, lists, text fragments) are live ydoc handles at
T.K.F that mutations never overwrite. The key field itself is never
stored; it is synthesized from the path on read.

**Partial rows.**
Replication delivers rows field by field, so a key can be present in the
index while its row container does not yet satisfy the schema. Reads treat
such rows as absent; watchers park them in a pending state and admit them
the moment a replicated change makes them valid.

**Concurrency.**
Everything runs synchronously on the caller's goroutine, under the
document's single-context model. Watcher callbacks are invoked on the
stack of the mutation or update application that triggered them.
*/
package yquery
