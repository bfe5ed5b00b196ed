// Package model describes the base objects manipulated by datapush.
//
// The object model for datapush is composed of:
//
//  Datasets:
//    A dataset is identified by an organization and a name. Its content is indexed by
//    a storage engine, which describes a point in time state of the dataset as a stamp.
//
//  Stamps:
//    A stamp is an opaque, comparable descriptor of the full content of a dataset:
//    the content hash of every file and the identifiers of all metadata entries,
//    summarized by a checksum.
//
//  Deltas:
//    A delta lists the operations (additions, removals, metadata changes) that
//    turn a dataset state into another one.
//
//  Push sessions:
//    A push session tracks a client pushing changes to a dataset: the baseline stamp
//    captured when the session is initialized, the files and metadata uploaded to its
//    staging area, and the state of the session.
package model
