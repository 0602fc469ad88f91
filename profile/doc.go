// Package profile describes lab importer pipelines in CUE.
//
// A profile names the files each modality kind imports, the children each
// level creates and the dataset level files an import maintains. Profiles
// are checked against an embedded schema, decoded into Go structs and
// installed into a bids.Catalog under the profile name:
//
//	p, err := profile.Builtin(ctx, "Pia")
//	if err != nil {
//		return err
//	}
//	if err := profile.Install(catalog, p, nil); err != nil {
//		return err
//	}
//
// Steps refer to transforms by name (see filespec.NewTransforms) or to
// external programs, which are run as "program [args...] source
// destination".
package profile
