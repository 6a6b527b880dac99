/*
Package ngm2 is the overall repository for the hierarchical dendritic neuron
group model (ngm2): a biologically-inspired unsupervised representation
learning engine built from neuron groups, dendritic branches with segment-tree
structural growth, and a double-buffered lock-step simulation environment.

This top level of the repository has no functional code -- everything is
organized into the following sub-packages:

* numeric: small numeric helpers shared across the model (sigmoid shaping,
normalized Shannon entropy, min-max normalization, local inhibition).

* ioport: the double-buffered vector port used for all inter-entity wiring,
together with the running statistics (sum/avg/min/max/entropy) computed on
every buffer swap.

* dendrite: the dendritic branch -- a structure-of-arrays synapse store
organized as a binary segment tree, with response, adaptation and structural
growth ("branching") operations.

* neuron: a single neuron, aggregating the responses of its apical and
proximal dendrites into a stochastic overall activity and gating learning by
an activity window.

* population: the neuron group -- the external entity that runs neurons in
parallel, applies local inhibition, and drives stochastic winner-take-most
learning across the population.

* sim: the lock-step simulation environment -- a typed entity registry, port
wiring, and the double-buffered process/swap cycle that lets entities be
wired in cycles without read-after-write hazards.
*/
package ngm2
